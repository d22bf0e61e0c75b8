package app

import "github.com/tejashwikalptaru/mantra/internal/domain"

const defaultPlatform = domain.PlatformIOS
