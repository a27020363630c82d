// Package api serves the notification pull API and the push streams.
package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/butvinm-itmo/highload-sub001/internal/auth"
	"github.com/butvinm-itmo/highload-sub001/notification-service/domain"
	"github.com/butvinm-itmo/highload-sub001/notification-service/stream"
)

const (
	maxListLimit  = 100
	channelBuffer = 32
)

// Storage lists stored notifications.
type Storage interface {
	ListNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
}

// UnreadCounter counts unread notifications.
type UnreadCounter interface {
	CountUnread(ctx context.Context, userID string) (int64, error)
}

// Channels tracks open push channels.
type Channels interface {
	Register(userID string, ch stream.Channel)
	Unregister(userID string, ch stream.Channel) bool
}

type notificationsResponse struct {
	Notifications []domain.NotificationDTO `json:"notifications"`
	UnreadCount   int64                    `json:"unreadCount"`
}

// Register wires up the notification routes on the given Echo instance.
func Register(e *echo.Echo, store Storage, counter UnreadCounter, channels Channels, a auth.Authenticator, logger *log.Logger) {
	g := e.Group("", auth.Middleware(a))
	g.GET("/api/notifications", listNotifications(store, counter))
	g.GET("/stream", streamSSE(channels, logger))
	g.GET("/ws", streamWS(channels, logger))
}

func listNotifications(store Storage, counter UnreadCounter) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID := auth.UserID(c)

		limit := 0
		if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				return c.String(http.StatusBadRequest, "invalid limit")
			}
			limit = min(n, maxListLimit)
		}

		list, err := store.ListNotifications(ctx, userID, limit)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		unread, err := counter.CountUnread(ctx, userID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		resp := notificationsResponse{
			Notifications: make([]domain.NotificationDTO, 0, len(list)),
			UnreadCount:   unread,
		}
		for _, n := range list {
			resp.Notifications = append(resp.Notifications, n.ToDTO())
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func streamSSE(channels Channels, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := auth.UserID(c)
		w := c.Response()
		if _, ok := w.Writer.(http.Flusher); !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		w.Header().Set(echo.HeaderContentType, "text/event-stream")
		w.Header().Set(echo.HeaderCacheControl, "no-cache")
		w.Header().Set(echo.HeaderConnection, "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		w.Flush()

		ch := stream.NewSSEChannel(channelBuffer)
		channels.Register(userID, ch)
		defer func() {
			channels.Unregister(userID, ch)
			ch.Close()
		}()
		entry := logger.WithFields(log.Fields{"userId": userID, "transport": "sse"})
		entry.Debug("stream opened")
		if err := ch.Serve(c.Request().Context(), w); err != nil {
			entry.WithError(err).Debug("stream write failed")
		}
		entry.Debug("stream closed")
		return nil
	}
}

func streamWS(channels Channels, logger *log.Logger) echo.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	return func(c echo.Context) error {
		userID := auth.UserID(c)
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			// Upgrade has already written the error response.
			return nil
		}
		ch := stream.NewWSChannel(conn, channelBuffer)
		channels.Register(userID, ch)
		defer func() {
			channels.Unregister(userID, ch)
			ch.Close()
		}()
		entry := logger.WithFields(log.Fields{"userId": userID, "transport": "ws"})
		entry.Debug("stream opened")
		if err := ch.Serve(c.Request().Context()); err != nil {
			entry.WithError(err).Debug("stream write failed")
		}
		entry.Debug("stream closed")
		return nil
	}
}
