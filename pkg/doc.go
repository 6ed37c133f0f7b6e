// Package jose implements JavaScript Object Signing and Encryption (JOSE) related functionality.
//
// Related RFCs:
//   - RFC7515 https://datatracker.ietf.org/doc/html/rfc7515 JWS, JSON Web Signature
//   - RFC7516 https://datatracker.ietf.org/doc/html/rfc7516 JWE, JSON Web Encryption
//   - RFC7517 https://datatracker.ietf.org/doc/html/rfc7517 JWK, JSON Web Key
//   - RFC7518 https://datatracker.ietf.org/doc/html/rfc7518 JWA, JSON Web Algorithms
//   - RFC7519 https://datatracker.ietf.org/doc/html/rfc7519 JWT, JSON Web Token
//   - RFC7638 https://datatracker.ietf.org/doc/html/rfc7638 JWK Thumbprint
//   - RFC7797 https://datatracker.ietf.org/doc/html/rfc7797 Unencoded Payload Option
//   - RFC8037 https://datatracker.ietf.org/doc/html/rfc8037 CFRG Curves in JOSE
//
// Related Information:
//   - https://datatracker.ietf.org/wg/jose/charter/
package jose
