package common

const (
	// AccessTokenCookieName and RefreshTokenCookieName are the cookies that
	// carry the session credentials between browser and server.
	AccessTokenCookieName  = "accessToken"
	RefreshTokenCookieName = "refreshToken"

	// AccessTokenMetadataKey is the gRPC metadata key carrying the access token.
	AccessTokenMetadataKey = "access_token"
)
