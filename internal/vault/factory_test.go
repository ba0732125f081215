package vault

import (
	"context"
	"testing"

	"siashare-go/internal/config"
)

func TestNewVaultFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.VaultConfig
		wantErr bool
	}{
		{
			name: "memory vault",
			cfg:  config.VaultConfig{Type: "memory", Name: "test-memory"},
		},
		{
			name: "filesystem vault",
			cfg:  config.VaultConfig{Type: "filesystem", Name: "test-fs", FSVaultRoot: t.TempDir()},
		},
		{
			name:    "filesystem vault without root",
			cfg:     config.VaultConfig{Type: "filesystem", Name: "test-fs"},
			wantErr: true,
		},
		{
			name: "s3 vault",
			cfg: config.VaultConfig{
				Type:        "s3",
				Name:        "test-s3",
				S3Bucket:    "my-bucket",
				S3Region:    "us-east-1",
				S3Endpoint:  "http://127.0.0.1:9000",
				S3AccessKey: "minio",
				S3SecretKey: "minio123",
			},
		},
		{
			name:    "s3 vault without bucket",
			cfg:     config.VaultConfig{Type: "s3", Name: "test-s3"},
			wantErr: true,
		},
		{
			name: "renterd vault",
			cfg:  config.VaultConfig{Type: "renterd", Name: "sia", RenterdURL: "http://localhost:9980"},
		},
		{
			name:    "renterd vault without url",
			cfg:     config.VaultConfig{Type: "renterd", Name: "sia"},
			wantErr: true,
		},
		{
			name:    "unknown vault type",
			cfg:     config.VaultConfig{Type: "unknown", Name: "test-unknown"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewVaultFromConfig(context.Background(), tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Error("NewVaultFromConfig() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewVaultFromConfig() unexpected error: %v", err)
			}
			if got == nil {
				t.Error("NewVaultFromConfig() returned nil vault")
			}
		})
	}
}
