package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-presence-api/internal/models"
	"github.com/noah-isme/sma-presence-api/internal/realtime"
)

const startRequestID = "sim-start"

type apiClient struct {
	http   *http.Client
	base   string
	prefix string
	token  string
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	var (
		base       string
		prefix     string
		identifier string
		secret     string
		token      string
		delay      time.Duration
		retry      time.Duration
		timeout    time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&prefix, "prefix", "/api/v1", "API route prefix")
	flag.StringVar(&identifier, "identifier", "", "Faculty identifier used to log in")
	flag.StringVar(&secret, "secret", "", "Faculty secret used to log in")
	flag.StringVar(&token, "token", "", "Access token; skips login when set")
	flag.DurationVar(&delay, "delay", 2*time.Second, "Delay between simulated sightings")
	flag.DurationVar(&retry, "retry", 3*time.Second, "Reconnect delay")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	logr, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	api := &apiClient{http: &http.Client{Timeout: timeout}, base: strings.TrimRight(base, "/"), prefix: prefix, token: token}
	if api.token == "" {
		if identifier == "" || secret == "" {
			log.Fatal("either -token or -identifier and -secret are required")
		}
		if err := api.login(identifier, secret); err != nil {
			log.Fatalf("login failed: %v", err)
		}
	}

	wsURL, origin, err := channelURL(api.base)
	if err != nil {
		log.Fatalf("invalid base URL: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source := realtime.NewSimulatedSource(delay, logr)
	var client *realtime.Client
	client = realtime.NewClient(realtime.ClientConfig{
		URL:        wsURL,
		Origin:     origin,
		Token:      api.token,
		RetryDelay: retry,
		OnConnect: func(c *realtime.Client) {
			if err := c.Send(startRequestID, realtime.ScanStart{}); err != nil {
				logr.Warn("scan_start not sent", zap.Error(err))
			}
		},
		OnFrame: func(frame realtime.Frame) {
			msg, err := realtime.Decode(frame)
			if err != nil {
				logr.Warn("undecodable frame", zap.String("type", frame.Type), zap.Error(err))
				return
			}
			switch m := msg.(type) {
			case *realtime.ScanStarted:
				if frame.RequestID != startRequestID {
					return
				}
				go startSightings(ctx, api, source, client, m.SessionID, logr)
			case *realtime.ScanStopped:
				source.Stop(m.SessionID)
			case *realtime.SessionClosed:
				source.Stop(m.SessionID)
				logr.Info("session closed", zap.String("session_id", m.SessionID), zap.String("status", m.Status))
			case *realtime.AttendanceMarked:
				logr.Info("attendance marked", zap.String("student_id", m.StudentID), zap.Int("period", m.Period))
			case *realtime.ErrorMessage:
				logr.Warn("server rejected frame", zap.String("code", m.Code), zap.String("message", m.Message))
			}
		},
	}, logr)

	if err := client.Run(ctx); err != nil {
		logr.Sugar().Fatalw("presence channel failed", "error", err)
	}
}

func startSightings(ctx context.Context, api *apiClient, source *realtime.SimulatedSource, client *realtime.Client, sessionID string, logr *zap.Logger) {
	roster, err := api.roster(sessionID)
	if err != nil {
		logr.Warn("roster unavailable", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	logr.Info("simulating sightings", zap.String("session_id", sessionID), zap.Int("students", len(roster)))
	source.Start(ctx, sessionID, roster, func(d realtime.DeviceDiscovered) {
		if err := client.Send("", d); err != nil {
			logr.Debug("sighting dropped", zap.String("device_id", d.DeviceID), zap.Error(err))
		}
	})
}

func channelURL(base string) (string, string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", "", err
	}
	origin := u.Scheme + "://" + u.Host
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	return u.String(), origin, nil
}

func (a *apiClient) login(identifier, secret string) error {
	var res models.LoginResponse
	req := models.LoginRequest{Role: string(models.RoleFaculty), Identifier: identifier, Secret: secret}
	if err := a.do(http.MethodPost, "/auth/login", req, &res); err != nil {
		return err
	}
	a.token = res.AccessToken
	return nil
}

func (a *apiClient) roster(sessionID string) ([]string, error) {
	var session models.AttendanceSession
	if err := a.do(http.MethodGet, "/sessions/"+url.PathEscape(sessionID), nil, &session); err != nil {
		return nil, err
	}
	var roster []string
	if err := a.do(http.MethodGet, "/classes/"+url.PathEscape(session.ClassID)+"/roster", nil, &roster); err != nil {
		return nil, err
	}
	return roster, nil
}

func (a *apiClient) do(method, path string, body interface{}, dest interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, a.base+a.prefix+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode, err)
	}
	if env.Error != nil {
		return fmt.Errorf("%s %s: %s: %s", method, path, env.Error.Code, env.Error.Message)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	return json.Unmarshal(env.Data, dest)
}
