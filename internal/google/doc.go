// Package google provides OAuth2 credential provisioning for Google APIs.
//
// The package owns the whole token lifecycle for a single installed-app
// client: the on-disk token record (FileTokenStore), the client identity
// downloaded from the Google Cloud console (FileClientConfigSource), the
// loopback listener that captures the authorization redirect
// (CallbackServer) and the Controller state machine that decides whether a
// cached token can be reused, refreshed or must be re-acquired interactively.
//
// Downstream packages depend only on the CredentialProvider interface:
//
//	ctrl := google.NewController(google.ControllerConfig{...})
//	rec, err := ctrl.GetValidCredential(ctx)
//	if err != nil {
//	    // errors.Is(err, google.ErrAuthorizationTimeout) etc.
//	}
//	client := google.NewHTTPClient(ctx, rec.StaticTokenSource())
package google
