package receipt

import (
	"log/slog"

	"github.com/kittykitkitt/kit/pos"
)

// Service ties the codec to a ledger and a receipts directory.
type Service struct {
	ledger *pos.Ledger
	codec  Codec
	dir    string
	logger *slog.Logger
}

// NewService creates a service writing receipts to dir.
func NewService(ledger *pos.Ledger, codec Codec, dir string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, codec: codec, dir: dir, logger: logger}
}

// Codec returns the service's codec.
func (s *Service) Codec() Codec { return s.codec }

// Dir returns the receipts directory.
func (s *Service) Dir() string { return s.dir }
