package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"livedetect/internal/dto"
	"livedetect/internal/logger"
)

// Upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all origins.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ViewWebsocketHandler handles viewer connections over WebSocket. Viewers get
// the rendered overlay frames and report paints, visibility and layout back.
func ViewWebsocketHandler(ctrl Controller, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}

		ctrl.GetWebsocketService().Register(connection)
		defer ctrl.GetWebsocketService().Unregister(connection)

		for {
			_, data, err := connection.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Info("Viewer disconnected normally")
				} else {
					logger.Warning("Viewer disconnected: %v", err)
				}
				break
			}

			var msg dto.ViewerMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				logger.Warning("Malformed viewer message: %v", err)
				continue
			}
			ctrl.HandleViewerMessage(connection, msg)
		}
	}
}
