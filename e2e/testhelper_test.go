package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/docpipe/api/internal/client"
	"github.com/docpipe/api/internal/config"
	"github.com/docpipe/api/internal/engine"
	"github.com/docpipe/api/internal/handler"
	"github.com/docpipe/api/internal/llm"
	"github.com/docpipe/api/internal/middleware"
	"github.com/docpipe/api/internal/model"
	"github.com/docpipe/api/internal/operation"
	"github.com/docpipe/api/internal/service"
	"github.com/docpipe/api/internal/store"
)

const testJWTSecret = "test-secret-for-e2e"

const testDocument = "# Notice\n\nHello world.\n\nGoodbye world."

// testApp holds all components needed for testing.
type testApp struct {
	app     *fiber.App
	storage *client.MemoryStorage
}

// syncQueue runs tasks inline so pipelines finish within a single request.
type syncQueue struct {
	engine *engine.Engine
}

func (q *syncQueue) EnqueueStage(ctx context.Context, jobID string, stageIndex int) error {
	return q.engine.RunStage(ctx, jobID, stageIndex)
}

func (q *syncQueue) EnqueueApply(ctx context.Context, jobID string, stageIndex int) error {
	return q.engine.ApplyStage(ctx, jobID, stageIndex)
}

// scriptedGenerator pops canned provider responses in call order.
type scriptedGenerator struct {
	responses []string
	calls     int
}

func (g *scriptedGenerator) Generate(ctx context.Context, system, user string) (string, llm.Usage, error) {
	i := g.calls
	if i >= len(g.responses) {
		i = len(g.responses) - 1
	}
	g.calls++
	return g.responses[i], llm.Usage{PromptTokens: 10, ResponseTokens: 5, TotalTokens: 15}, nil
}

func (g *scriptedGenerator) Family() model.Provider { return model.ProviderOpenAI }
func (g *scriptedGenerator) Model() string          { return "test-model" }
func (g *scriptedGenerator) IsConfigured() bool     { return true }

// setupApp wires a Fiber app like main.go but on in-memory stores and
// storage, a synchronous queue and scripted provider responses.
func setupApp(t *testing.T, responses ...string) *testApp {
	t.Helper()

	validate := validator.New()

	gen := &scriptedGenerator{responses: responses}
	callers := llm.NewRegistry(
		func(model.Provider, string) (llm.Generator, error) { return gen, nil },
		config.RetryConfig{CallTimeout: time.Second, OpenAIMaxAttempts: 1, GeminiMaxAttempts: 1},
	)
	executors := operation.NewRegistry(callers, config.PricingConfig{}, 15)

	stores := store.NewMemoryStores()
	storage := client.NewMemoryStorage()
	queue := &syncQueue{}
	eng := engine.New(stores, stores.Operations(), stores.Documents(), storage, executors, queue, nil)
	queue.engine = eng

	if _, err := storage.Upload(context.Background(), "uploads/doc-1.md",
		strings.NewReader(testDocument), "text/markdown"); err != nil {
		t.Fatalf("failed to seed storage: %v", err)
	}

	pipelineService := service.NewPipelineService(stores, stores.Operations(),
		stores.Documents(), storage, eng, queue, validate)
	pipelineHandler := handler.NewPipelineHandler(pipelineService, validate)

	authMiddleware := middleware.NewAuthMiddleware(testJWTSecret)
	rateLimiter := middleware.NewRateLimiter(nil) // nil redis → limiter passes through

	app := fiber.New()

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api", authMiddleware.Authenticate())
	pipelines := api.Group("/pipelines")
	pipelines.Post("/", rateLimiter.PipelineLimit(10000), pipelineHandler.Create)
	pipelines.Get("/:jobId", pipelineHandler.Status)
	pipelines.Get("/:jobId/suggestions", pipelineHandler.Suggestions)
	pipelines.Get("/:jobId/download", pipelineHandler.Download)
	pipelines.Post("/:jobId/approve", pipelineHandler.Approve)
	pipelines.Post("/:jobId/cancel", pipelineHandler.Cancel)
	pipelines.Post("/:jobId/pause", pipelineHandler.Pause)
	pipelines.Post("/:jobId/resume", pipelineHandler.Resume)

	return &testApp{app: app, storage: storage}
}

// generateToken creates an HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	claims := middleware.UserClaims{
		UserID: "test-user-123",
		Email:  "test@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "docpipe-api",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
