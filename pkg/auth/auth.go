package auth

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"sponsorportal/pkg/config"
)

var Module = fx.Module("auth", fx.Provide(NewFirebaseVerifier))

var ErrInvalidToken = errors.New("invalid id token")

const (
	RoleSponsor    = "sponsor"
	RoleMissionary = "missionary"
	RoleAdmin      = "admin"
)

// Identity is the resolved caller. The portal consumes nothing else from the auth
// provider.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

type Verifier interface {
	Verify(ctx context.Context, idToken string) (*Identity, error)
}

type tokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

type firebaseVerifier struct {
	client tokenVerifier
}

// NewFirebaseVerifier builds a verifier backed by the Firebase Admin SDK. Without a
// credentials file the SDK falls back to application default credentials.
func NewFirebaseVerifier(cfg *config.Config) (Verifier, error) {
	var opts []option.ClientOption
	if cfg.Firebase.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
	}

	app, err := firebase.NewApp(context.Background(), &firebase.Config{ProjectID: cfg.Firebase.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}

	client, err := app.Auth(context.Background())
	if err != nil {
		return nil, fmt.Errorf("firebase auth: %w", err)
	}

	zap.L().Info("firebase auth initialized", zap.String("project_id", cfg.Firebase.ProjectID))
	return &firebaseVerifier{client: client}, nil
}

func (v *firebaseVerifier) Verify(ctx context.Context, idToken string) (*Identity, error) {
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return identityFromToken(token), nil
}

func identityFromToken(token *fbauth.Token) *Identity {
	id := &Identity{UserID: token.UID, Role: RoleSponsor}
	if email, ok := token.Claims["email"].(string); ok {
		id.Email = email
	}
	if role, ok := token.Claims["role"].(string); ok && role != "" {
		id.Role = role
	}
	return id
}
