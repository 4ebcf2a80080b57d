package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"plant-id/api/internal/identify"
	"plant-id/api/internal/plant"
)

var (
	identifyEngine  string
	identifyTimeout time.Duration
)

var identifyCmd = &cobra.Command{
	Use:   "identify [image-file]",
	Short: "Identify a plant photo and print the record as JSON",
	Long: `Reads an image file, runs one identification and prints the normalized
plant record to stdout.

Example:
  plantid identify rose.jpg --engine gpt`,
	Args: cobra.ExactArgs(1),
	RunE: runIdentify,
}

func runIdentify(cmd *cobra.Command, args []string) error {
	img, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	timeout := identifyTimeout
	if timeout <= 0 {
		timeout = cfg.RequestTimeout
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	a, err := newApp(ctx, cfg, false, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.svc.Identify(ctx, identify.Request{
		Image:     img,
		Engine:    identifyEngine,
		RequestID: uuid.NewString(),
	})
	if err != nil {
		if pe, ok := plant.AsError(err); ok {
			logger.Error("identification failed", zap.String("kind", string(pe.Kind)), zap.Error(err))
			return errors.New(pe.UserMessage())
		}
		return err
	}

	out, err := json.MarshalIndent(res.Record, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	logger.Info("identified",
		zap.String("engine", res.Engine),
		zap.String("model", res.Model),
		zap.Duration("elapsed", res.Elapsed),
	)
	return nil
}
