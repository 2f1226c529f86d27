package conn

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/tobsdb/memdb"
	"github.com/tobsdb/memdb/internal/auth"
	"github.com/tobsdb/memdb/pkg"
)

type WsRequest struct {
	Action RequestAction `json:"action"`
	ReqId  int           `json:"__tdb_client_req_id__"` // used in tdb clients
}

var Upgrader = websocket.Upgrader{
	WriteBufferSize: 1024 * 10,
	ReadBufferSize:  1024 * 10,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server exposes an engine over websocket connections. Clients
// authenticate with basic auth on the upgrade request.
type Server struct {
	engine *memdb.Engine
	users  *auth.Users
}

func NewServer(engine *memdb.Engine, users *auth.Users) *Server {
	return &Server{engine, users}
}

func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	username, password, _ := r.BasicAuth()
	user, err := s.users.Authenticate(username, password)
	if err != nil {
		ConnError(w, r, err.Error())
		return
	}

	ctx, err := NewConnCtx(s.engine, user)
	if err != nil {
		ConnError(w, r, err.Error())
		return
	}
	defer ctx.Close()

	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		pkg.ErrorLog("upgrade", err)
		return
	}
	defer conn.Close()
	pkg.InfoLog("New connection from", conn.RemoteAddr(), "as", user.Name)
	defer pkg.InfoLog("Connection closed from", conn.RemoteAddr())

	for {
		_, buf, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				pkg.ErrorLog("conn read error", err)
			}
			return
		}

		var req WsRequest
		if err := json.Unmarshal(buf, &req); err != nil {
			pkg.ErrorLog("parsing request", err)
			res := NewErrorResponse(http.StatusBadRequest, err.Error())
			if err := conn.WriteMessage(websocket.TextMessage, res.Marshal()); err != nil {
				return
			}
			continue
		}

		res := ActionHandler(ctx, req.Action, buf)
		res.ReqId = req.ReqId
		pkg.DebugLog("action", req.Action, "status", res.Status)

		if err := conn.WriteMessage(websocket.TextMessage, res.Marshal()); err != nil {
			pkg.ErrorLog("writing response", err)
			return
		}
	}
}

func ConnError(w http.ResponseWriter, r *http.Request, conn_error string) {
	pkg.InfoLog("connection error:", conn_error)
	headers := http.Header{}
	headers.Set("tdb-error", conn_error)
	conn, err := Upgrader.Upgrade(w, r, headers)
	if err != nil {
		pkg.ErrorLog(err)
		return
	}

	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, conn_error))
	conn.Close()
}
