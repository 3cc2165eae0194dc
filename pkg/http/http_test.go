package http

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Window      []float64 `json:"window" validate:"required,min=2"`
	Granularity int       `json:"granularity" default:"60" validate:"oneof=60 300"`
}

func bind(t *testing.T, body string, req interface{}) []ValidationError {
	t.Helper()
	e := echo.New()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return ReadAndValidateRequest(e.NewContext(r, httptest.NewRecorder()), req)
}

func TestReadAndValidateRequest(t *testing.T) {
	var ok sampleRequest
	require.Nil(t, bind(t, `{"window":[1,2,3]}`, &ok))
	assert.Equal(t, 60, ok.Granularity)

	var short sampleRequest
	verrs := bind(t, `{"window":[1],"granularity":7}`, &short)
	require.Len(t, verrs, 2)
	assert.Equal(t, "window", verrs[0].Field)
	assert.Equal(t, "ERR_MIN", verrs[0].Code)
	assert.Equal(t, "window must have at least 2 items", verrs[0].Message)
	assert.Equal(t, "granularity", verrs[1].Field)
	assert.Equal(t, []string{"60", "300"}, verrs[1].Params["options"])

	var bad sampleRequest
	verrs = bind(t, `{"window":`, &bad)
	require.Len(t, verrs, 1)
	assert.Equal(t, "ERR_MALFORMED", verrs[0].Code)
}

type routes struct{}

func (routes) RegisterRoutes(e *echo.Echo) {
	e.GET("/conflict", func(c echo.Context) error {
		return AppErrorResponse(c, ConflictError("busy").WithParam("product", "BTC-USD"))
	})
	e.GET("/opaque", func(c echo.Context) error {
		return AppErrorResponse(c, errors.New("dsn=secret"))
	})
	e.GET("/panic", func(echo.Context) error { panic("boom") })
	e.GET("/ok", func(c echo.Context) error { return SuccessResponse(c, map[string]int{"n": 1}) })
}

type envelope struct {
	Status int               `json:"status"`
	Data   []json.RawMessage `json:"data"`
}

func serve(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var env envelope
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) && path != "/ok" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestServerErrorEnvelope(t *testing.T) {
	s := NewServer(routes{}, WithMetricsPath(""))

	for path, want := range map[string]struct {
		status int
		code   string
	}{
		"/conflict": {http.StatusConflict, "ERR_CONFLICT"},
		"/opaque":   {http.StatusInternalServerError, "ERR_INTERNAL"},
		"/panic":    {http.StatusInternalServerError, "ERR_HTTP"},
		"/missing":  {http.StatusNotFound, "ERR_HTTP"},
	} {
		t.Run(path, func(t *testing.T) {
			rec, env := serve(t, s, path)
			assert.Equal(t, want.status, rec.Code)
			assert.Equal(t, want.status, env.Status)
			require.Len(t, env.Data, 1)
			var ae AppError
			require.NoError(t, json.Unmarshal(env.Data[0], &ae))
			assert.Equal(t, want.code, ae.Code)
			assert.NotContains(t, ae.Message, "secret")
		})
	}

	rec, _ := serve(t, s, "/ok")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestServerStartStop(t *testing.T) {
	s := NewServer(routes{}, WithHost("127.0.0.1"), WithPort(0))
	require.NoError(t, s.Start())
	require.NotEmpty(t, s.Addr())

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	taken := NewServer(nil, WithHost("127.0.0.1"), WithPort(portOf(t, s.Addr())))
	assert.Error(t, taken.Start())

	require.NoError(t, s.Stop(context.Background()))
}

func portOf(t *testing.T, addr string) int {
	t.Helper()
	_, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return p
}

func TestClientRetriesThrottledRequests(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, "60", r.URL.Query().Get("granularity"))
		assert.Equal(t, "latenttrader", r.Header.Get("User-Agent"))
		if n < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"price":"1.5"}`))
	}))
	defer srv.Close()

	c := NewClient(WithRetries(2, time.Millisecond))
	var out struct {
		Price string `json:"price"`
	}
	err := c.SendAndParse(context.Background(), &RequestOptions{
		URL:   srv.URL,
		Query: map[string][]string{"granularity": {"60"}},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "1.5", out.Price)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "no such product", http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewClient(WithRetries(5, time.Millisecond)).SendAndParse(context.Background(), &RequestOptions{URL: srv.URL}, nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.False(t, se.Retryable())
	assert.Equal(t, int32(1), calls.Load())
}
