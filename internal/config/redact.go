package config

const redactedMask = "********"

// Redacted returns a copy safe to hand to API clients.
func (c Config) Redacted() Config {
	out := c
	mask(&out.Cache.Redis.Password)
	mask(&out.Telemetry.ClickHouse.Password)
	out.Sources = append([]Source(nil), c.Sources...)
	for i := range out.Sources {
		mask(&out.Sources[i].AppKey)
	}
	return out
}

// RestoreSecrets puts back any secret a client echoed as the mask.
func RestoreSecrets(incoming, current Config) Config {
	if incoming.Cache.Redis.Password == redactedMask {
		incoming.Cache.Redis.Password = current.Cache.Redis.Password
	}
	if incoming.Telemetry.ClickHouse.Password == redactedMask {
		incoming.Telemetry.ClickHouse.Password = current.Telemetry.ClickHouse.Password
	}
	incoming.Sources = append([]Source(nil), incoming.Sources...)
	for i := range incoming.Sources {
		if incoming.Sources[i].AppKey != redactedMask {
			continue
		}
		incoming.Sources[i].AppKey = ""
		if cur, ok := current.SourceByID(incoming.Sources[i].ID); ok {
			incoming.Sources[i].AppKey = cur.AppKey
		}
	}
	return incoming
}

func mask(s *string) {
	if *s != "" {
		*s = redactedMask
	}
}
