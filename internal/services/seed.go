package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/tipjar/broker/internal/models"
)

// DecodeSeed reads a JSON array of streamer profiles.
func DecodeSeed(r io.Reader) ([]models.StreamerProfile, error) {
	var profiles []models.StreamerProfile
	if err := json.NewDecoder(r).Decode(&profiles); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	return profiles, nil
}

// SeedFromFile loads path into the directory, skipping profiles that
// already exist.
func (d *Directory) SeedFromFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	profiles, err := DecodeSeed(f)
	if err != nil {
		return 0, err
	}
	return d.Seed(ctx, profiles)
}
