// Package base64 implements the base64url encoding without padding used
// throughout the JOSE specifications (RFC 4648 Section 5, RFC 7515
// Appendix C).
package base64
