//go:build lambda

package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"taptimise/internal/api"
	"taptimise/internal/config"
	"taptimise/internal/logger"
	"taptimise/internal/model"
	"taptimise/internal/opt"
	"taptimise/internal/store"
)

var jsonHeader = map[string]string{
	"Content-Type": "application/json",
}

type handler struct {
	srv *api.Server
}

func (h handler) handle(ctx context.Context, event events.LambdaFunctionURLRequest) (events.LambdaFunctionURLResponse, error) {
	body := event.Body
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return errResp(400, "invalid base64 body")
		}
		body = string(decoded)
	}

	var req model.OptimizeRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return errResp(400, "invalid JSON: "+err.Error())
	}
	// a function invocation cannot outlive its response
	req.Async = false
	req.CallbackURL = ""

	out, err := h.srv.Solve(ctx, req)
	if err != nil {
		status := 500
		switch {
		case errors.Is(err, api.ErrInvalidRequest):
			status = 400
		case errors.Is(err, opt.ErrInsufficientCapacity):
			status = 422
		case errors.Is(err, context.DeadlineExceeded):
			status = 504
		}
		return errResp(status, err.Error())
	}
	b, err := json.Marshal(out)
	if err != nil {
		return errResp(500, err.Error())
	}
	return events.LambdaFunctionURLResponse{StatusCode: 200, Headers: jsonHeader, Body: string(b)}, nil
}

func errResp(status int, msg string) (events.LambdaFunctionURLResponse, error) {
	b, _ := json.Marshal(api.Problem{Type: "about:blank", Title: "Optimization failed", Status: status, Detail: msg})
	return events.LambdaFunctionURLResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/problem+json"},
		Body:       string(b),
	}, nil
}

func main() {
	cfg := config.Default()
	if path := os.Getenv("TAPTIMISE_CONFIG"); path != "" {
		c, err := config.Load(path)
		if err != nil {
			slog.Error("config_load_error", "path", path, "err", err)
			os.Exit(1)
		}
		cfg = c
	}
	if err := config.FromEnv(&cfg); err != nil {
		slog.Error("config_env_error", "err", err)
		os.Exit(1)
	}
	l := logger.Setup(cfg.Log.Level, "json")
	// one run per invocation
	cfg.Server.Workers = 1
	srv := api.NewServer(cfg, store.NewMemory(), nil, nil, l)
	lambda.Start(handler{srv: srv}.handle)
}
