package analytics

import "fmt"

const (
	maxIDLength       = 128
	maxMetaLength     = 500
	identityKeyLength = 16
)

var validDeviceClasses = map[string]bool{
	DeviceMobile:  true,
	DeviceTablet:  true,
	DeviceDesktop: true,
	DeviceBot:     true,
	DeviceUnknown: true,
}

// ValidateClickEventPayload validates click event payload fields.
func ValidateClickEventPayload(payload ClickEventPayload) error {
	if payload.LinkID == "" {
		return fmt.Errorf("link_id is required")
	}
	if len(payload.LinkID) > maxIDLength {
		return fmt.Errorf("link_id too long")
	}
	if payload.OrgID == "" {
		return fmt.Errorf("org_id is required")
	}
	if len(payload.OrgID) > maxIDLength || len(payload.ProjectID) > maxIDLength || len(payload.AccountID) > maxIDLength {
		return fmt.Errorf("scope id too long")
	}
	if !validDeviceClasses[payload.DeviceClass] {
		return fmt.Errorf("device_class %q is not recognised", payload.DeviceClass)
	}
	if len(payload.IdentityKey) != identityKeyLength || !isHex(payload.IdentityKey) {
		return fmt.Errorf("identity_key must be %d hex chars", identityKeyLength)
	}
	if payload.ClickedAt <= 0 {
		return fmt.Errorf("clicked_at must be set")
	}
	if len(payload.Referrer) > maxMetaLength {
		return fmt.Errorf("referrer too long")
	}
	if len(payload.UserAgent) > maxMetaLength {
		return fmt.Errorf("user_agent too long")
	}
	return nil
}

func isHex(value string) bool {
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F') {
			continue
		}
		return false
	}
	return true
}
