package client

// JWTService methods.
const (
	MethodIssueToken        = "JWTService.IssueToken"
	MethodIssueServiceToken = "JWTService.IssueServiceToken"
	MethodValidateToken     = "JWTService.ValidateToken"
	MethodRefreshToken      = "JWTService.RefreshToken"
	MethodRevokeToken       = "JWTService.RevokeToken"
	MethodParseToken        = "JWTService.ParseToken"
	MethodExtractClaims     = "JWTService.ExtractClaims"
	MethodValidateBatch     = "JWTService.ValidateBatch"
	MethodGetPublicKey      = "JWTService.GetPublicKey"
	MethodHealthCheck       = "JWTService.HealthCheck"
)

// APIKeyService methods.
const (
	MethodCreateAPIKey   = "APIKeyService.CreateAPIKey"
	MethodValidateAPIKey = "APIKeyService.ValidateAPIKey"
	MethodRevokeAPIKey   = "APIKeyService.RevokeAPIKey"
	MethodListAPIKeys    = "APIKeyService.ListAPIKeys"
)

// Methods lists every method of the service catalogue.
var Methods = []string{
	MethodIssueToken,
	MethodIssueServiceToken,
	MethodValidateToken,
	MethodRefreshToken,
	MethodRevokeToken,
	MethodParseToken,
	MethodExtractClaims,
	MethodValidateBatch,
	MethodGetPublicKey,
	MethodHealthCheck,
	MethodCreateAPIKey,
	MethodValidateAPIKey,
	MethodRevokeAPIKey,
	MethodListAPIKeys,
}
