// Package oauth2consent implements goSession.ConsentUI with the OAuth2 authorization
// code flow.
//
// Launch builds an authorization URL with a random state and a PKCE S256 challenge,
// hands it to a Prompt, and exchanges the returned code for tokens. The id_token of the
// token response is what the engine passes to the identity backend.
//
// Outcomes map onto the goSession taxonomy:
//
//   - closing the prompt, an empty answer or access_denied: ErrCancelled
//   - a redirect with the wrong state or an invalid_grant reply: ErrInvalidCredentials
//   - transport failures and other provider errors: ErrProviderUnavailable
//   - a token response without id_token: an empty token (NoIdentityToken in the engine)
package oauth2consent
