package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/SkyZonDev/scrappex/internal/models"
)

// lotsFile is the --lots document:
//
//	lots:
//	  - id: 12
//	    at: "2026-10-18T10:00:00"
type lotsFile struct {
	Lots []struct {
		ID int64  `yaml:"id"`
		At string `yaml:"at"`
	} `yaml:"lots"`
}

func loadLotsFile(path string, loc *time.Location) ([]models.Lot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lots file: %w", err)
	}
	var f lotsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing lots file: %w", err)
	}
	lots := make([]models.Lot, 0, len(f.Lots))
	for i, l := range f.Lots {
		t, err := models.ParseTargetTime(l.At, loc)
		if err != nil {
			return nil, fmt.Errorf("lots[%d]: %w", i, err)
		}
		lots = append(lots, models.Lot{ID: l.ID, TargetAt: t})
	}
	return lots, nil
}

// parseLotFlag reads ID=TIME, e.g. 12=2026-10-18T10:00:00.
func parseLotFlag(s string, loc *time.Location) (models.Lot, error) {
	idPart, at, ok := strings.Cut(s, "=")
	if !ok {
		return models.Lot{}, fmt.Errorf("--lot %q: expected ID=TIME", s)
	}
	id, err := strconv.ParseInt(strings.TrimSpace(idPart), 10, 64)
	if err != nil {
		return models.Lot{}, fmt.Errorf("--lot %q: invalid id", s)
	}
	t, err := models.ParseTargetTime(at, loc)
	if err != nil {
		return models.Lot{}, fmt.Errorf("--lot %q: %w", s, err)
	}
	return models.Lot{ID: id, TargetAt: t}, nil
}
