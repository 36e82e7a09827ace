package common

// AuthorizationHeaderName is the HTTP header / gRPC metadata key carrying the
// bearer access token.
const AuthorizationHeaderName = "authorization"

// BearerScheme is the authorization scheme accepted for access tokens.
const BearerScheme = "Bearer"

// RefreshTokenCookieName is the cookie holding the opaque refresh token.
const RefreshTokenCookieName = "refreshToken"
