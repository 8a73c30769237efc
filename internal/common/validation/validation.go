package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxWalletAddressLength = 128
	MaxDisplayNameLength   = 32
	MaxBioLength           = 1000
	MaxPhotoURLLength      = 2048
	MaxRoleLength          = 20

	MinDisplayNameLength = 1
)

var (
	walletAddressRegex = regexp.MustCompile(`^[A-Za-z0-9:_\-+/=.]+$`)
	roleRegex          = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

func ValidateWalletAddress(address string) error {
	if address == "" {
		return fmt.Errorf("wallet address cannot be empty")
	}
	if len(address) > MaxWalletAddressLength {
		return fmt.Errorf("wallet address cannot exceed %d characters", MaxWalletAddressLength)
	}
	if !walletAddressRegex.MatchString(address) {
		return fmt.Errorf("wallet address contains invalid characters")
	}
	return nil
}

// ValidateDisplayName counts runes, not bytes.
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < MinDisplayNameLength {
		return fmt.Errorf("display name cannot be empty")
	}
	if n > MaxDisplayNameLength {
		return fmt.Errorf("display name cannot exceed %d characters", MaxDisplayNameLength)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("display name contains control characters")
		}
	}
	return nil
}

func ValidateBio(bio string) error {
	if utf8.RuneCountInString(bio) > MaxBioLength {
		return fmt.Errorf("bio cannot exceed %d characters", MaxBioLength)
	}
	return nil
}

// ValidatePhotoURL accepts an empty value, which clears the photo.
func ValidatePhotoURL(raw string) error {
	if raw == "" {
		return nil
	}
	if len(raw) > MaxPhotoURLLength {
		return fmt.Errorf("profile photo url cannot exceed %d characters", MaxPhotoURLLength)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("profile photo url must be an absolute http(s) url")
	}
	return nil
}

func ValidateUserRole(role string) error {
	if len(role) > MaxRoleLength {
		return fmt.Errorf("role cannot exceed %d characters", MaxRoleLength)
	}
	if !roleRegex.MatchString(role) {
		return fmt.Errorf("role must be lowercase letters, digits or underscores")
	}
	return nil
}
