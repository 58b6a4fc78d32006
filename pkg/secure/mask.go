package secure

// Mask 脱敏：长值保留前 6 位 + ... + 后 4 位；短值只露后 2 位
func Mask(addr string) string {
	switch {
	case len(addr) > 10:
		return addr[:6] + "..." + addr[len(addr)-4:]
	case len(addr) > 4:
		return "***" + addr[len(addr)-2:]
	default:
		return "***"
	}
}
