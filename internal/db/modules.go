package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopcoreapp/shopcore/internal/crypto"
	"github.com/shopcoreapp/shopcore/internal/shipping"
)

// ModuleConfigStore persists per-merchant shipping module
// configurations. Credentials are encrypted at rest; settings are not.
type ModuleConfigStore struct {
	pool      *pgxpool.Pool
	encryptor crypto.Encryptor
}

func NewModuleConfigStore(pool *pgxpool.Pool, encryptor crypto.Encryptor) *ModuleConfigStore {
	return &ModuleConfigStore{pool: pool, encryptor: encryptor}
}

func (s *ModuleConfigStore) GetIntegrationConfigurations(ctx context.Context, merchantID uuid.UUID) ([]shipping.IntegrationConfiguration, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT module_code, enabled, credentials, settings
		FROM shipping_module_configs
		WHERE merchant_id = $1
		ORDER BY module_code`, merchantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load module configurations: %w", err)
	}
	defer rows.Close()

	var configurations []shipping.IntegrationConfiguration
	for rows.Next() {
		var (
			configuration shipping.IntegrationConfiguration
			encrypted     string
			settingsJSON  []byte
		)
		if err := rows.Scan(&configuration.ModuleCode, &configuration.Enabled, &encrypted, &settingsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan module configuration: %w", err)
		}

		if encrypted != "" {
			credentialsJSON, err := s.encryptor.Decrypt(encrypted)
			if err != nil {
				return nil, fmt.Errorf("failed to decrypt credentials for %s: %w", configuration.ModuleCode, err)
			}
			if err := json.Unmarshal([]byte(credentialsJSON), &configuration.Credentials); err != nil {
				return nil, fmt.Errorf("failed to unmarshal credentials for %s: %w", configuration.ModuleCode, err)
			}
		}
		if len(settingsJSON) > 0 {
			if err := json.Unmarshal(settingsJSON, &configuration.Settings); err != nil {
				return nil, fmt.Errorf("failed to unmarshal settings for %s: %w", configuration.ModuleCode, err)
			}
		}

		configurations = append(configurations, configuration)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read module configurations: %w", err)
	}
	return configurations, nil
}

// Upsert stores a module configuration, replacing any existing row for
// the same merchant and module code.
func (s *ModuleConfigStore) Upsert(ctx context.Context, merchantID uuid.UUID, configuration shipping.IntegrationConfiguration) error {
	credentialsJSON, err := json.Marshal(configuration.Credentials)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	encrypted, err := s.encryptor.Encrypt(string(credentialsJSON))
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}
	settingsJSON, err := json.Marshal(configuration.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO shipping_module_configs (merchant_id, module_code, enabled, credentials, settings)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (merchant_id, module_code)
		DO UPDATE SET enabled = $3, credentials = $4, settings = $5`,
		merchantID, configuration.ModuleCode, configuration.Enabled, encrypted, settingsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert module configuration: %w", err)
	}
	return nil
}
