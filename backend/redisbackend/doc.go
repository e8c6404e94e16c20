// Package redisbackend is a goSession.IdentityBackend backed by Redis.
//
// It stands in for a hosted identity service: email identities with Argon2id secrets,
// phone identities confirmed by one-time codes, identities linked from external ID
// tokens, and password reset links. Every successful check yields a short-lived signed
// credential whose jti is recorded in Redis and burned by EstablishSession, so a
// credential establishes at most one session.
//
// # Key layout
//
//	<prefix>:u:<userID>        identity hash (email, phone, secret, provider, disabled)
//	<prefix>:email:<email>     email index
//	<prefix>:phone:<number>    phone index
//	<prefix>:ext:<iss>|<sub>   external subject index
//	<prefix>:cred:<jti>        outstanding credential
//	<prefix>:pc:<vid>          phone code record
//	<prefix>:rs:<token>        resend token to verification id
//	<prefix>:ps:<number>       phone send window counter
//	<prefix>:rt:<resetID>      password reset record
//	<prefix>:current           the device's current identity
//
// Phone codes are delivered through an SMSSender and reset links through a Mailer. The
// console implementations print to a writer, which is what the demo uses.
package redisbackend
