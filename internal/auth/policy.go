package auth

import "github.com/hitoshi/coursegate/internal/model"

// Policy は認証済みPrincipalに操作を許可するかを判定する述語。
type Policy func(p *model.Principal) bool

// PrimaryEmailPolicy は先頭のメールアドレスが指定値と完全一致する場合のみ許可する。
// emailが空の場合は誰も許可しない。
func PrimaryEmailPolicy(email string) Policy {
	return func(p *model.Principal) bool {
		if email == "" || p == nil {
			return false
		}
		return p.PrimaryEmail() == email
	}
}
