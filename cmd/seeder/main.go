// cmd/seeder/main.go
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/unclebandit/campaign-messaging/internal/config"
	"github.com/unclebandit/campaign-messaging/internal/logging"
	"github.com/unclebandit/campaign-messaging/internal/model"
	"github.com/unclebandit/campaign-messaging/internal/repository"
)

// Loads contacts from a CSV file with a "phone,opt_in" header into the
// configured store. Existing phones are updated in place.
func main() {
	file := flag.String("file", "seed/clients.csv", "CSV file with phone,opt_in columns")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	f, err := os.Open(*file)
	if err != nil {
		logger.Fatal("failed to open seed file", zap.String("file", *file), zap.Error(err))
	}
	defer f.Close()

	clients, err := readClients(f)
	if err != nil {
		logger.Fatal("failed to parse seed file", zap.String("file", *file), zap.Error(err))
	}

	ctx := context.Background()
	store, err := repository.NewStore(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer store.Close(ctx)

	n, err := seed(ctx, store.Clients, clients)
	if err != nil {
		logger.Fatal("seeding failed", zap.Int("seeded", n), zap.Error(err))
	}
	logger.Info("database seeding completed", zap.String("file", *file), zap.Int("clients", n))
}

func seed(ctx context.Context, repo repository.ClientRepositoryInterface, clients []model.Client) (int, error) {
	for i := range clients {
		if err := repo.Upsert(ctx, &clients[i]); err != nil {
			return i, fmt.Errorf("upsert %s: %w", clients[i].Phone, err)
		}
	}
	return len(clients), nil
}

func readClients(r io.Reader) ([]model.Client, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	phoneCol, optCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "phone":
			phoneCol = i
		case "opt_in":
			optCol = i
		}
	}
	if phoneCol < 0 || optCol < 0 {
		return nil, errors.New("header must contain phone and opt_in")
	}

	var clients []model.Client
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)

		phone := strings.TrimSpace(rec[phoneCol])
		if phone == "" {
			return nil, fmt.Errorf("line %d: empty phone", line)
		}
		optIn, err := strconv.ParseBool(strings.TrimSpace(rec[optCol]))
		if err != nil {
			return nil, fmt.Errorf("line %d: opt_in: %w", line, err)
		}
		clients = append(clients, model.Client{Phone: phone, OptIn: optIn})
	}
	return clients, nil
}
