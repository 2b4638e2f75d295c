package ingest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func setupTestRouter(cfg Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	router.POST("/tickets", Middleware(cfg), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/tickets/:id/status", Middleware(cfg), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/tickets-error", Middleware(cfg), func(c *gin.Context) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	})

	return router
}

func TestMiddleware_FirstDelivery(t *testing.T) {
	deduper := NewMemoryDeduper()
	defer deduper.Close()

	cfg := NewConfig(deduper).WithLogger(zerolog.Nop())
	router := setupTestRouter(cfg)

	body := []byte(`{"ticketId": "TKT-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/tickets", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestMiddleware_RedeliverySuppressed(t *testing.T) {
	deduper := NewMemoryDeduper()
	defer deduper.Close()

	cfg := NewConfig(deduper).WithLogger(zerolog.Nop())
	router := setupTestRouter(cfg)

	body := []byte(`{"ticketId": "TKT-1"}`)

	// First delivery
	req1 := httptest.NewRequest(http.MethodPost, "/tickets", bytes.NewReader(body))
	req1.Header.Set("Content-Type", "application/json")
	w1 := httptest.NewRecorder()
	router.ServeHTTP(w1, req1)

	if w1.Code != http.StatusOK {
		t.Errorf("first delivery: expected status 200, got %d", w1.Code)
	}

	// Redelivery with the same body
	req2 := httptest.NewRequest(http.MethodPost, "/tickets", bytes.NewReader(body))
	req2.Header.Set("Content-Type", "application/json")
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req2)

	if w2.Code != http.StatusConflict {
		t.Errorf("redelivery: expected status 409, got %d", w2.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w2.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if resp["error"] != "conflict" {
		t.Errorf("expected error 'conflict', got '%v'", resp["error"])
	}
}

func TestMiddleware_DifferentBodies(t *testing.T) {
	deduper := NewMemoryDeduper()
	defer deduper.Close()

	cfg := NewConfig(deduper).WithLogger(zerolog.Nop())
	router := setupTestRouter(cfg)

	body1 := []byte(`{"ticketId": "TKT-1"}`)
	req1 := httptest.NewRequest(http.MethodPost, "/tickets", bytes.NewReader(body1))
	req1.Header.Set("Content-Type", "application/json")
	w1 := httptest.NewRecorder()
	router.ServeHTTP(w1, req1)

	if w1.Code != http.StatusOK {
		t.Errorf("first delivery: expected status 200, got %d", w1.Code)
	}

	body2 := []byte(`{"ticketId": "TKT-2"}`)
	req2 := httptest.NewRequest(http.MethodPost, "/tickets", bytes.NewReader(body2))
	req2.Header.Set("Content-Type", "application/json")
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req2)

	if w2.Code != http.StatusOK {
		t.Errorf("different body: expected status 200, got %d", w2.Code)
	}
}

func TestMiddleware_EventIDHeader(t *testing.T) {
	deduper := NewMemoryDeduper()
	defer deduper.Close()

	cfg := NewConfig(deduper).WithLogger(zerolog.Nop())
	router := setupTestRouter(cfg)

	// Same event ID, different bodies: still a redelivery.
	req1 := httptest.NewRequest(http.MethodPost, "/tickets/TKT-1/status", bytes.NewReader([]byte(`{"status": "open"}`)))
	req1.Header.Set(EventIDHeader, "evt-42")
	w1 := httptest.NewRecorder()
	router.ServeHTTP(w1, req1)

	if w1.Code != http.StatusOK {
		t.Errorf("first delivery: expected status 200, got %d", w1.Code)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/tickets/TKT-1/status", bytes.NewReader([]byte(`{"status": "on_hold"}`)))
	req2.Header.Set(EventIDHeader, "evt-42")
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req2)

	if w2.Code != http.StatusConflict {
		t.Errorf("same event ID: expected status 409, got %d", w2.Code)
	}

	// Same event ID for a different ticket is a new event.
	req3 := httptest.NewRequest(http.MethodPost, "/tickets/TKT-2/status", bytes.NewReader([]byte(`{"status": "open"}`)))
	req3.Header.Set(EventIDHeader, "evt-42")
	w3 := httptest.NewRecorder()
	router.ServeHTTP(w3, req3)

	if w3.Code != http.StatusOK {
		t.Errorf("different ticket: expected status 200, got %d", w3.Code)
	}
}

func TestMiddleware_DeleteKeyOnError(t *testing.T) {
	deduper := NewMemoryDeduper()
	defer deduper.Close()

	cfg := NewConfig(deduper).WithLogger(zerolog.Nop())
	router := setupTestRouter(cfg)

	body := []byte(`{"ticketId": "TKT-1"}`)

	// Failed processing deletes the key so the source can redeliver.
	req1 := httptest.NewRequest(http.MethodPost, "/tickets-error", bytes.NewReader(body))
	w1 := httptest.NewRecorder()
	router.ServeHTTP(w1, req1)

	if w1.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w1.Code)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/tickets-error", bytes.NewReader(body))
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req2)

	if w2.Code != http.StatusInternalServerError {
		t.Errorf("retry after error: expected status 500 (not 409), got %d", w2.Code)
	}
}

func TestMiddleware_ExpiredKeyAllowsRedelivery(t *testing.T) {
	deduper := NewMemoryDeduper()
	defer deduper.Close()

	cfg := NewConfig(deduper).WithLogger(zerolog.Nop()).WithTTL(time.Nanosecond)
	router := setupTestRouter(cfg)

	body := []byte(`{"ticketId": "TKT-1"}`)

	req1 := httptest.NewRequest(http.MethodPost, "/tickets", bytes.NewReader(body))
	w1 := httptest.NewRecorder()
	router.ServeHTTP(w1, req1)

	time.Sleep(10 * time.Millisecond)

	req2 := httptest.NewRequest(http.MethodPost, "/tickets", bytes.NewReader(body))
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req2)

	if w2.Code != http.StatusOK {
		t.Errorf("expired key: expected status 200, got %d", w2.Code)
	}
}
