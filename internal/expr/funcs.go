package expr

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
	"github.com/tobsdb/memdb/internal/builder"
	"github.com/tobsdb/memdb/pkg"
)

const (
	FuncDate        = "date"
	FuncJSONExtract = "json_extract"
)

const date_layout = "2006-01-02"

const like_cache_size = 256

var like_cache = func() *lru.Cache[string, *regexp.Regexp] {
	cache, err := lru.New[string, *regexp.Regexp](like_cache_size)
	if err != nil {
		pkg.FatalLog("creating like pattern cache;", err)
	}
	return cache
}()

// likeRegexp translates a LIKE pattern: % matches any run of characters
// and _ matches exactly one. Matching is case-sensitive.
func likeRegexp(pattern string) *regexp.Regexp {
	if re, ok := like_cache.Get(pattern); ok {
		return re
	}
	var b strings.Builder
	b.WriteString(`^(?s:`)
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString(`)$`)
	re := regexp.MustCompile(b.String())
	like_cache.Add(pattern, re)
	return re
}

func likeText(v any) (string, bool) {
	switch v := v.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case []byte:
		return string(v), true
	}
	s, err := cast.ToStringE(v)
	return s, err == nil
}

func (c *compiler) like(e Expr) (triFunc, error) {
	if err := c.args(e, 2); err != nil {
		return nil, err
	}
	x, err := c.operand(e.Args[0])
	if err != nil {
		return nil, err
	}
	pattern, err := c.operand(e.Args[1])
	if err != nil {
		return nil, err
	}

	var fixed *regexp.Regexp
	if pattern.literal {
		p, ok := pattern.value.(string)
		if !ok {
			return nil, unsupported("like pattern must be a string, got %T", pattern.value)
		}
		fixed = likeRegexp(p)
	}

	negated := e.Negated
	return func(row builder.Row) tri {
		text, ok := likeText(x.eval(row))
		if !ok {
			return triUnknown
		}
		re := fixed
		if re == nil {
			p, ok := likeText(pattern.eval(row))
			if !ok {
				return triUnknown
			}
			re = likeRegexp(p)
		}
		res := triOf(re.MatchString(text))
		if negated {
			return res.not()
		}
		return res
	}, nil
}

func (c *compiler) function(e Expr) (*operand, error) {
	switch strings.ToLower(e.Name) {
	case FuncDate:
		return c.date(e)
	case FuncJSONExtract:
		return c.jsonExtract(e)
	}
	return nil, unsupported("unknown function %q", e.Name)
}

// dateOf returns the calendar date of v as YYYY-MM-DD.
func dateOf(v any) any {
	switch v := v.(type) {
	case nil:
		return nil
	case time.Time:
		return v.Format(date_layout)
	}
	t, err := cast.ToTimeE(v)
	if err != nil {
		return nil
	}
	return t.Format(date_layout)
}

func (c *compiler) date(e Expr) (*operand, error) {
	if err := c.args(e, 1); err != nil {
		return nil, err
	}
	x, err := c.operand(e.Args[0])
	if err != nil {
		return nil, err
	}
	return &operand{
		eval: func(row builder.Row) any { return dateOf(x.eval(row)) },
		coerce: func(v any) any {
			if t, ok := v.(time.Time); ok {
				return t.Format(date_layout)
			}
			return v
		},
	}, nil
}

// gjsonPath converts a path such as $.a[0].b into gjson syntax. The $ root
// is optional, so a.b reads the same as $.a.b. The root path "$" converts
// to "".
func gjsonPath(path string) (string, bool) {
	path = strings.TrimSpace(path)
	switch {
	case strings.HasPrefix(path, "$"):
	case strings.HasPrefix(path, "["):
		path = "$" + path
	default:
		path = "$." + path
	}
	rest := path[1:]
	parts := []string{}
	for len(rest) > 0 {
		switch rest[0] {
		case '.':
			rest = rest[1:]
			var key string
			if strings.HasPrefix(rest, `"`) {
				// quoted keys may contain . and [
				end := strings.IndexByte(rest[1:], '"')
				if end < 0 {
					return "", false
				}
				key, rest = rest[1:end+1], rest[end+2:]
			} else {
				end := strings.IndexAny(rest, ".[")
				if end < 0 {
					end = len(rest)
				}
				key, rest = rest[:end], rest[end:]
			}
			if len(key) == 0 {
				return "", false
			}
			parts = append(parts, escapeGJSONKey(key))
		case '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return "", false
			}
			idx := strings.TrimSpace(rest[1:end])
			if _, err := strconv.ParseUint(idx, 10, 64); err != nil {
				return "", false
			}
			parts = append(parts, idx)
			rest = rest[end+1:]
		default:
			return "", false
		}
	}
	return strings.Join(parts, "."), true
}

func escapeGJSONKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func jsonBytes(v any) ([]byte, bool) {
	switch v := v.(type) {
	case string:
		if gjson.Valid(v) {
			return []byte(v), true
		}
	case []byte:
		if gjson.ValidBytes(v) {
			return v, true
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return b, true
}

func jsonResultValue(res gjson.Result) any {
	if !res.Exists() {
		return nil
	}
	switch res.Type {
	case gjson.Null:
		return nil
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.String:
		return res.Str
	case gjson.Number:
		if res.Num == math.Trunc(res.Num) && math.Abs(res.Num) < 1<<53 {
			return int64(res.Num)
		}
		return res.Num
	}
	return res.Value()
}

// extractJSON navigates path, already in gjson syntax, into v.
func extractJSON(v any, path string) any {
	if v == nil {
		return nil
	}
	raw, ok := jsonBytes(v)
	if !ok {
		return nil
	}
	if len(path) == 0 {
		return jsonResultValue(gjson.ParseBytes(raw))
	}
	return jsonResultValue(gjson.GetBytes(raw, path))
}

func (c *compiler) jsonExtract(e Expr) (*operand, error) {
	if err := c.args(e, 2); err != nil {
		return nil, err
	}
	x, err := c.operand(e.Args[0])
	if err != nil {
		return nil, err
	}
	path, err := c.operand(e.Args[1])
	if err != nil {
		return nil, err
	}

	if path.literal {
		raw, ok := path.value.(string)
		if !ok {
			return nil, unsupported("json_extract path must be a string, got %T", path.value)
		}
		gpath, ok := gjsonPath(raw)
		if !ok {
			return nil, unsupported("invalid json path %q", raw)
		}
		return &operand{eval: func(row builder.Row) any {
			return extractJSON(x.eval(row), gpath)
		}}, nil
	}

	return &operand{eval: func(row builder.Row) any {
		raw, ok := path.eval(row).(string)
		if !ok {
			return nil
		}
		gpath, ok := gjsonPath(raw)
		if !ok {
			return nil
		}
		return extractJSON(x.eval(row), gpath)
	}}, nil
}
