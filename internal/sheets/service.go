package sheets

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Services bundles the two read-only Google clients built from one
// service-account credential.
type Services struct {
	Drive  *drive.Service
	Sheets *sheets.Service
}

func NewServices(ctx context.Context, credentialsFile string) (*Services, error) {
	blob, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	creds, err := google.CredentialsFromJSON(ctx, blob,
		sheets.SpreadsheetsReadonlyScope,
		drive.DriveReadonlyScope,
	)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	driveSvc, err := drive.NewService(ctx, option.WithTokenSource(creds.TokenSource))
	if err != nil {
		return nil, err
	}
	sheetsSvc, err := sheets.NewService(ctx, option.WithTokenSource(creds.TokenSource))
	if err != nil {
		return nil, err
	}

	return &Services{Drive: driveSvc, Sheets: sheetsSvc}, nil
}
