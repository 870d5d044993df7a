// Package gmail provides a minimal read-only Gmail client used to verify
// that a stored credential is accepted by the Gmail API.
//
// Example usage:
//
//	client, err := gmail.NewClient(ctx, httpClient)
//	if err != nil {
//	    return err
//	}
//	profile, err := client.Profile(ctx)
package gmail
