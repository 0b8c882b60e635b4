package api

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/isqad/melody"
	"github.com/rs/zerolog/log"

	"github.com/schoolmesh/studyrooms/internal/eventbus"
	"github.com/schoolmesh/studyrooms/internal/rooms"
)

const (
	wsSubscriptionSessionKey = "subscription"
	wsUserIDSessionKey       = "userId"
	wsConnectionIDSessionKey = "connectionId"
)

// WebsocketsHandler upgrades the request, assigns the connection its id and
// subscribes it to its client-bound event channel. The authenticated user id
// travels in the session keys from here on; event payloads never override it.
func WebsocketsHandler(eventsSubscriber eventbus.Subscriber, websocket *melody.Melody) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := extractUserID(r)
		if err != nil {
			log.Error().Err(err).Str("service", "websockets").Msg("can't get the user from request context")
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		connectionID := uuid.NewString()

		subscription, err := eventsSubscriber.SubscribeClient(connectionID)
		if err != nil {
			log.Error().Err(err).Str("service", "websockets").Msg("can't subscribe the connection to signaling channel")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		sessKeys := make(map[string]interface{})
		sessKeys[wsUserIDSessionKey] = userID
		sessKeys[wsConnectionIDSessionKey] = connectionID
		sessKeys[wsSubscriptionSessionKey] = subscription

		if err := websocket.HandleRequestWithKeys(w, r, sessKeys); err != nil {
			log.Error().Err(err).Str("service", "websockets").Msg("can't handle request")
		}
	}
}

func ConnectHandler(coordinator *rooms.Coordinator) func(session *melody.Session) {
	return func(session *melody.Session) {
		connectionID, userID, err := sessionIdentity(session)
		if err != nil {
			log.Error().Err(err).Str("service", "websockets").Msg("extract identity")
			closeWsSession(session)
			return
		}

		subscription, err := getSubscription(session)
		if err != nil {
			log.Error().Err(err).Str("service", "websockets").Msg("extract subscription")
			closeWsSession(session)
			return
		}

		// Single writer per connection: the subscription channel is ordered,
		// so relayed messages for one pair stay in send order.
		go func() {
			ch := subscription.Channel()

			for msg := range ch {
				if err := session.Write([]byte(msg.Payload)); err != nil {
					// there's only session closed error can be
					log.Error().Err(err).Str("service", "websockets").Str("connectionID", connectionID).Msg("")
					return
				}
			}
		}()

		coordinator.Connect(connectionID, userID)
	}
}

func DisconnectHandler(coordinator *rooms.Coordinator) func(session *melody.Session) {
	return func(session *melody.Session) {
		connectionID, _, err := sessionIdentity(session)
		if err != nil {
			log.Error().Err(err).Str("service", "websockets").Msg("extract identity")
			return
		}

		coordinator.Disconnect(connectionID)

		subscription, err := getSubscription(session)
		if err != nil {
			log.Error().Err(err).Str("service", "websockets").Msg("extract subscription")
			return
		}
		if err := subscription.Close(); err != nil {
			log.Error().Err(err).Str("service", "websockets").Msg("close subscription")
		}
	}
}

func HandleMessage(coordinator *rooms.Coordinator) func(s *melody.Session, msg []byte) {
	return func(s *melody.Session, msg []byte) {
		connectionID, _, err := sessionIdentity(s)
		if err != nil {
			log.Error().Err(err).Str("service", "websockets").Msg("extract identity")
			closeWsSession(s)
			return
		}

		coordinator.Dispatch(connectionID, msg)
	}
}

func sessionIdentity(s *melody.Session) (connectionID, userID string, err error) {
	rawConn, ok := s.Keys[wsConnectionIDSessionKey]
	if !ok {
		return "", "", fmt.Errorf("no connection id for given session: %+v", s)
	}
	connectionID, ok = rawConn.(string)
	if !ok {
		return "", "", fmt.Errorf("can't convert connection id: %+v", rawConn)
	}

	rawUser, ok := s.Keys[wsUserIDSessionKey]
	if !ok {
		return "", "", fmt.Errorf("no user id for given session: %+v", s)
	}
	userID, ok = rawUser.(string)
	if !ok {
		return "", "", fmt.Errorf("can't convert user id: %+v", rawUser)
	}

	return connectionID, userID, nil
}

func getSubscription(s *melody.Session) (eventbus.Subscription, error) {
	raw, ok := s.Keys[wsSubscriptionSessionKey]
	if !ok {
		return nil, fmt.Errorf("no sub for given session: %+v", s)
	}
	subscription, ok := raw.(eventbus.Subscription)
	if !ok {
		return nil, fmt.Errorf("can't convert subscription: %+v", raw)
	}
	return subscription, nil
}

func closeWsSession(s *melody.Session) {
	if err := s.Close(); err != nil {
		log.Error().Err(err).Str("service", "websockets").Msg("close session")
	}
}
