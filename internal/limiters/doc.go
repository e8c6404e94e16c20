// Package limiters holds the Redis fixed-window throttles of the reference identity
// backend. [PhoneSendLimiter] bounds how many codes one number can be sent per window.
//
// Limiters only count. What a limit means for the caller is decided by the backend.
package limiters
