package archive

// User is the quota-owning principal (spec §3).
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
	Role         string `json:"role"`
	QuotaBytes   int64  `json:"quotaBytes"` // 0 = unlimited
	UsedBytes    int64  `json:"usedBytes"`
}

// WouldExceedQuota reports invariant 6: quotaBytes > 0 implies
// usedBytes <= quotaBytes after accepting additionalBytes.
func (u User) WouldExceedQuota(additionalBytes int64) bool {
	if u.QuotaBytes <= 0 {
		return false
	}
	return u.UsedBytes+additionalBytes > u.QuotaBytes
}

// ProviderHandle is a configured, bindable credential/endpoint for one
// provider family instance (spec §3).
type ProviderHandle struct {
	ID          string   `json:"id"`
	Family      Provider `json:"family"`
	OutboundURL string   `json:"outboundUrl"`
	Credential  string   `json:"credential"`
	Enabled     bool     `json:"enabled"`
}
