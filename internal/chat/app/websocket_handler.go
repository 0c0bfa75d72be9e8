package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"clinic_chat_service/internal/chat/domain"
	"clinic_chat_service/pkg/logger"
	"clinic_chat_service/pkg/middlewares"
	"clinic_chat_service/pkg/token"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

const (
	// QueryPatientID websocket query, 預設為登入者
	QueryPatientID = "patient_id"
	// QueryDoctorID websocket query
	QueryDoctorID = "doctor_id"

	pingInterval = 10 * time.Minute
)

// ChatWebsocketHandler opens one ChatSession per websocket connection
type ChatWebsocketHandler struct {
	deps SessionDeps
}

// NewChatWebsocketHandler create ChatWebsocketHandler. A nil deps.Identity
// resolves the caller from the JWT claims of the connection.
func NewChatWebsocketHandler(deps SessionDeps) *ChatWebsocketHandler {
	if deps.Identity == nil {
		deps.Identity = token.Identity{}
	}
	return &ChatWebsocketHandler{
		deps: deps,
	}
}

// wsConn 串行化寫入, snapshot 與 action 回應來自不同 goroutine
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) writeJSON(resp domain.WSResponse) {
	b, err := json.Marshal(resp)
	if err != nil {
		logger.Log.Error("websocket marshal", zap.String("action", resp.Action), zap.Error(err))
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		logger.Log.Warn("write message error", zap.Error(err))
	}
}

func (w *wsConn) writeControl(mt int, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(mt, data, time.Now().Add(time.Second))
}

// HandleConnection 是 WebSocket 連線的進入點
func (h *ChatWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	claims, _ := conn.Locals(middlewares.TokenClaims).(*token.Claims)
	if claims != nil {
		ctx = token.WithClaims(ctx, claims)
	}
	memberID := h.deps.Identity.CurrentUserID(ctx)
	var role token.RoleType
	if claims != nil {
		role = token.RoleType(claims.Role)
	}

	ws := &wsConn{conn: conn}
	log := logger.Log.With(zap.String("userID", memberID))

	ctxClose, cancel := context.WithCancel(ctx)
	ticker := time.NewTicker(pingInterval)

	// snapshot 要等 session_opened 送出後才寫
	opened := make(chan struct{})
	session, err := OpenChatSession(ctxClose, h.deps, OpenParams{
		PatientID:  conn.Query(QueryPatientID),
		DoctorID:   conn.Query(QueryDoctorID),
		CallerRole: role,
	}, func(views []domain.MessageView) {
		select {
		case <-opened:
		case <-ctxClose.Done():
			return
		}
		ws.writeJSON(domain.WSResponse{
			Action:  string(domain.Snapshot),
			Success: true,
			Payload: map[string]interface{}{"messages": views},
		})
	})
	if err != nil {
		ws.writeJSON(domain.WSResponse{Action: string(domain.SessionOpened), Error: err.Error()})
		closeWebSocketConnection(ws, websocket.ClosePolicyViolation, err.Error())
		ticker.Stop()
		cancel()
		return
	}

	defer func() {
		ticker.Stop()
		session.Close(context.Background())
		cancel()
		log.Info("websocket close", zap.String("room_id", session.RoomID()))
		conn.Close()
	}()

	openedPayload := map[string]interface{}{"room_id": session.RoomID()}
	if createdAt := session.RoomCreatedAt(); createdAt != nil {
		openedPayload["room_created_at"] = createdAt.UnixMilli()
	}
	ws.writeJSON(domain.WSResponse{Action: string(domain.SessionOpened), Success: true, Payload: openedPayload})
	close(opened)

	//client發出close
	//fiber會自動處理(在read msg 回傳err),故需要SetCloseHandler另外接出
	conn.SetCloseHandler(func(code int, text string) error {
		log.Info("websocket closed by client", zap.Int("code", code))
		return nil
	})

	//client發出ping
	conn.SetPingHandler(func(appData string) error {
		return ws.writeControl(websocket.PongMessage, []byte(appData))
	})

	// 定期發送 Ping
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := ws.writeControl(websocket.PingMessage, []byte("ping message")); err != nil {
					log.Warn("ping error", zap.Error(err))
					return
				}
			case <-ctxClose.Done():
				return
			}
		}
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			// 檢查是否為 Close 正常結束
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				log.Debug("connection closed")
			} else {
				//直接斷線 1006
				log.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			ws.writeJSON(errorResponse("unsupported message type"))
			continue
		}
		ws.writeJSON(h.execAction(ctxClose, session, message))
	}
}

// execAction 執行一個前端 action 並回傳結果
func (h *ChatWebsocketHandler) execAction(ctx context.Context, session *ChatSession, msg []byte) domain.WSResponse {
	var req domain.WSRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		return errorResponse("invalid request")
	}

	resp := domain.WSResponse{Action: req.Action, Payload: map[string]interface{}{}}
	switch domain.Action(req.Action) {
	case domain.SendMessage:
		msgID, err := session.SendText(ctx, req.Content)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
			resp.Payload["message_id"] = msgID
		}

	case domain.EditMessage:
		outcome, err := session.Edit(ctx, req.MessageID, req.Content)
		setMutation(&resp, outcome, err)

	case domain.DeleteMessage:
		outcome, err := session.Delete(ctx, req.MessageID)
		setMutation(&resp, outcome, err)

	//只交出 room id, 視訊由其他服務處理
	case domain.VideoCall:
		resp.Success = true
		resp.Payload["room_id"] = session.VideoCallRoomID()

	default:
		return errorResponse("unknown action")
	}

	if resp.Error != "" {
		logger.Log.Warn("websocket action failed",
			zap.String("caller", session.CallerID()),
			zap.String("action", req.Action),
			zap.String("err", resp.Error),
		)
	}
	return resp
}

// setMutation 缺少的訊息回報為 outcome=missing, 與成功與錯誤區分
func setMutation(resp *domain.WSResponse, outcome domain.MutationOutcome, err error) {
	if err != nil {
		resp.Error = err.Error()
		if errors.Is(err, domain.ErrPermissionDenied) {
			resp.Payload["reason"] = "permission_denied"
		}
		return
	}
	resp.Success = true
	resp.Payload["outcome"] = outcome.String()
}

func errorResponse(errorMsg string) domain.WSResponse {
	return domain.WSResponse{
		Action:  "error",
		Success: false,
		Payload: map[string]interface{}{
			"error": errorMsg,
		},
	}
}

func closeWebSocketConnection(ws *wsConn, code int, reason string) {
	ws.mu.Lock()
	err := ws.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	ws.mu.Unlock()
	if err != nil {
		logger.Log.Warn("failed to send CloseMessage", zap.Error(err))
	}
	ws.conn.Close()
}
