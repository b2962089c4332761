package handlers

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jason-s-yu/pricecheck/internal/auth"
	"github.com/jason-s-yu/pricecheck/internal/listing"
	"github.com/jason-s-yu/pricecheck/internal/models"
	"github.com/jason-s-yu/pricecheck/internal/room"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func testItems() []models.Item {
	return []models.Item{
		{ID: "bike", Title: "Road bike", Price: "100 USD", URL: "https://example.com/bike"},
		{ID: "lamp", Title: "Desk lamp", Price: "40", URL: "https://example.com/lamp"},
		{ID: "sofa", Title: "Sofa", Price: "$1,200", URL: "https://example.com/sofa"},
	}
}

// newTestAPI wires a server the way cmd/server does, minus the network.
func newTestAPI(t *testing.T) (*APIServer, *auth.Issuer) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	issuer, err := auth.NewIssuer(time.Hour)
	require.NoError(t, err)

	hub := NewHub(nil)
	ctrl := room.NewController(room.NewMemoryStore(), hub,
		listing.NewStatic(testItems(), 3, 1),
		room.WithLogger(logger),
	)
	api := NewAPIServer(ctrl, hub, issuer, logger)
	return api, issuer
}

func hasEvent(events []room.EventType, want room.EventType) bool {
	for _, ev := range events {
		if ev == want {
			return true
		}
	}
	return false
}

// lastError returns the code of the most recent error event queued on c.
func lastError(c *Connection) string {
	code := ""
	for {
		select {
		case ev := <-c.OutChan:
			if ev.Type == room.EventError {
				code = ev.Payload.(room.ErrorPayload).Code
			}
		default:
			return code
		}
	}
}

func itoa(n int) string { return strconv.Itoa(n) }

func toLower(s string) string { return strings.ToLower(s) }
