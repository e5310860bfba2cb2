package web

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Nyukimin/ranalyze/internal/domain/agent"
)

// Session は1つのWebSocket接続に紐づく分析セッション
type Session struct {
	Agent *agent.Agent
	Close func()
}

// SessionFactory は接続ごとに新しいセッションを作成する
type SessionFactory func() (*Session, error)

// inboundFrame はクライアントからのメッセージ
type inboundFrame struct {
	Type    string `json:"type"`    // "message" | "reset"
	Content string `json:"content"`
}

// outboundFrame はクライアントへの応答
type outboundFrame struct {
	Type    string `json:"type"`    // "result" | "needs_input" | "error" | "info"
	Content string `json:"content"`
}

// Server はWebSocket経由の分析セッションを提供する
// 接続ごとに独立したエージェントを持ち、作業ディレクトリ内の成果物を配信する
type Server struct {
	factory  SessionFactory
	workDir  string
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// NewServer は新しいServerを作成
func NewServer(factory SessionFactory, workDir string) *Server {
	return &Server{
		factory: factory,
		workDir: workDir,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		log: slog.With("component", "web"),
	}
}

// Handler はHTTPルーティングを組み立てる
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/files/", http.StripPrefix("/files/", http.FileServer(http.Dir(s.workDir))))
	return mux
}

// ListenAndServe は指定アドレスで待ち受ける
func (s *Server) ListenAndServe(addr string) error {
	s.log.Info("web server listening", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// handleWS は1接続分のセッションループを回す
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	session, err := s.factory()
	if err != nil {
		s.log.Error("failed to create session", "error", err)
		conn.WriteJSON(outboundFrame{Type: "error", Content: "セッションを開始できませんでした。"})
		return
	}
	defer session.Close()

	s.log.Info("session started", "remote", r.RemoteAddr)
	conn.WriteJSON(outboundFrame{Type: "info", Content: "分析したい内容を送信してください。"})

	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("session closed unexpectedly", "error", err)
			}
			return
		}

		switch frame.Type {
		case "reset":
			session.Agent.Reset()
			conn.WriteJSON(outboundFrame{Type: "info", Content: "会話をリセットしました。"})
		case "message":
			if frame.Content == "" {
				continue
			}
			result := session.Agent.Analyze(r.Context(), frame.Content)
			conn.WriteJSON(s.convertResult(result))
		default:
			conn.WriteJSON(outboundFrame{Type: "error", Content: "不明なメッセージ種別です。"})
		}
	}
}

// convertResult はエージェントの結果をフレームに変換
func (s *Server) convertResult(result agent.Result) outboundFrame {
	switch result.Kind {
	case agent.ResultNeedsInput:
		return outboundFrame{Type: "needs_input", Content: result.Question}
	case agent.ResultFailed:
		s.log.Error("analysis failed", "error", result.Err)
		return outboundFrame{Type: "error", Content: result.Message()}
	default:
		return outboundFrame{Type: "result", Content: result.Answer}
	}
}
