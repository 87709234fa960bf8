package relay

import "time"

// DefaultAnnounceInterval is how often the node's own unconfirmed transactions are re-announced.
const DefaultAnnounceInterval = 60 * time.Second

// Config는 릴레이 설정임.
type Config struct {
	CacheSize        int           // 중복 제거 캐시 크기
	AnnounceInterval time.Duration // 주기적 재공지 간격
	BackPressure     int           // 수신 큐 용량 (가득 차면 생산자가 블록됨)
}

// DefaultConfig는 릴레이의 디폴트 설정값임
func DefaultConfig() *Config {
	return &Config{
		CacheSize:        DefaultCacheSize,
		AnnounceInterval: DefaultAnnounceInterval,
		BackPressure:     100,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.CacheSize <= 0 {
		return ErrInvalidCacheSize
	}
	if c.AnnounceInterval <= 0 {
		return ErrInvalidAnnounceInterval
	}
	if c.BackPressure <= 0 {
		return ErrInvalidBackPressure
	}
	return nil
}

type configError string

func (e configError) Error() string {
	return string(e)
}

const (
	ErrInvalidCacheSize        = configError("cache size must be positive")
	ErrInvalidAnnounceInterval = configError("announce interval must be positive")
	ErrInvalidBackPressure     = configError("back-pressure limit must be positive")
)
