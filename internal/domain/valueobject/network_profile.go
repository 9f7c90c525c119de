package valueobject

import (
	"errors"
	"strings"
)

// ErrInvalidNetworkProfile возвращается для неизвестного профиля сети
var ErrInvalidNetworkProfile = errors.New("invalid network profile")

// NetworkProfile представляет условия измерения (Value Object)
type NetworkProfile string

const (
	Mobile  NetworkProfile = "Mobile"
	Desktop NetworkProfile = "Desktop"
)

// ParseNetworkProfile разбирает профиль без учета регистра
func ParseNetworkProfile(raw string) (NetworkProfile, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "mobile":
		return Mobile, nil
	case "desktop":
		return Desktop, nil
	default:
		return "", ErrInvalidNetworkProfile
	}
}

// Validate проверяет валидность профиля
func (p NetworkProfile) Validate() error {
	switch p {
	case Mobile, Desktop:
		return nil
	default:
		return ErrInvalidNetworkProfile
	}
}

// Strategy возвращает значение параметра strategy внешнего API
func (p NetworkProfile) Strategy() string {
	if p == Desktop {
		return "desktop"
	}
	return "mobile"
}

func (p NetworkProfile) String() string {
	return string(p)
}

// NetworkFilter ограничивает запуск одним профилем. Пустой фильтр означает "all".
type NetworkFilter struct {
	profile NetworkProfile
}

// AllNetworks возвращает фильтр без ограничений
func AllNetworks() NetworkFilter {
	return NetworkFilter{}
}

// OnlyNetwork возвращает фильтр по одному профилю
func OnlyNetwork(profile NetworkProfile) NetworkFilter {
	return NetworkFilter{profile: profile}
}

// ParseNetworkFilter принимает "", "all", "Mobile" или "Desktop"
func ParseNetworkFilter(raw string) (NetworkFilter, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, "all") {
		return AllNetworks(), nil
	}

	profile, err := ParseNetworkProfile(trimmed)
	if err != nil {
		return NetworkFilter{}, err
	}
	return OnlyNetwork(profile), nil
}

// IsAll сообщает, что фильтр пропускает все профили
func (f NetworkFilter) IsAll() bool {
	return f.profile == ""
}

// Profile возвращает выбранный профиль (пустой для "all")
func (f NetworkFilter) Profile() NetworkProfile {
	return f.profile
}

// Matches проверяет профиль на соответствие фильтру
func (f NetworkFilter) Matches(profile NetworkProfile) bool {
	return f.IsAll() || f.profile == profile
}

func (f NetworkFilter) String() string {
	if f.IsAll() {
		return "all"
	}
	return string(f.profile)
}
