package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"finitefield.org/arcade/internal/platform/config"
)

// FirebaseVerifier checks player ID tokens and loads profiles through the
// Firebase Admin SDK. It satisfies TokenVerifier and UserGetter.
type FirebaseVerifier struct {
	client *firebaseauth.Client
}

var (
	_ TokenVerifier = (*FirebaseVerifier)(nil)
	_ UserGetter    = (*FirebaseVerifier)(nil)
)

var errVerifierNotReady = errors.New("auth: firebase verifier not initialised")

// NewFirebaseVerifier builds an Admin SDK auth client for cfg.ProjectID.
func NewFirebaseVerifier(ctx context.Context, cfg config.FirebaseConfig) (*FirebaseVerifier, error) {
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		return nil, errors.New("auth: firebase project id is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("auth: firebase app for %s: %w", projectID, err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: firebase auth client for %s: %w", projectID, err)
	}
	return &FirebaseVerifier{client: client}, nil
}

// VerifyIDToken checks signature, audience and expiry of idToken.
func (v *FirebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	if v == nil || v.client == nil {
		return nil, errVerifierNotReady
	}
	return v.client.VerifyIDToken(ctx, idToken)
}

// GetUser loads the profile for uid. Sign-in uses it to fill a missing
// display name or email.
func (v *FirebaseVerifier) GetUser(ctx context.Context, uid string) (*firebaseauth.UserRecord, error) {
	if v == nil || v.client == nil {
		return nil, errVerifierNotReady
	}
	return v.client.GetUser(ctx, uid)
}
