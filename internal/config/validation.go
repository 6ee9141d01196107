package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and cross-field constraints.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if cfg.Transfer.ChunkSize > cfg.Transfer.MaxUploadSize {
		return fmt.Errorf("transfer.chunk_size (%s) exceeds transfer.max_upload_size (%s)",
			cfg.Transfer.ChunkSize, cfg.Transfer.MaxUploadSize)
	}
	if cfg.Admin.Enabled && cfg.Admin.Port == cfg.Server.Port {
		return fmt.Errorf("admin.port and server.port must differ (both %d)", cfg.Server.Port)
	}
	return nil
}
