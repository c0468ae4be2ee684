package domain

import (
	"fmt"
	"net/netip"
	"strings"
)

// TrustedProxies é o conjunto ordenado de faixas CIDR cujos cabeçalhos de
// encaminhamento são aceitos. Carregado uma vez no start e somente leitura
// depois disso, então pode ser compartilhado entre requests sem lock.
type TrustedProxies struct {
	prefixes []netip.Prefix
}

// ParseTrustedProxies aceita CIDRs ("10.0.0.0/8") e IPs soltos ("10.0.0.5",
// tratado como /32 ou /128). Entrada inválida é erro de configuração: uma faixa
// ignorada silenciosamente desligaria a proteção contra spoofing.
func ParseTrustedProxies(entries []string) (TrustedProxies, error) {
	out := TrustedProxies{}
	for _, raw := range entries {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		if strings.Contains(s, "/") {
			p, err := netip.ParsePrefix(s)
			if err != nil {
				return TrustedProxies{}, fmt.Errorf("%w: trusted proxy %q: %v", ErrInvalidConfig, s, err)
			}
			out.prefixes = append(out.prefixes, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(s)
		if err != nil {
			return TrustedProxies{}, fmt.Errorf("%w: trusted proxy %q: %v", ErrInvalidConfig, s, err)
		}
		a = a.Unmap()
		out.prefixes = append(out.prefixes, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

// MustParseTrustedProxies é para testes e valores fixos no código.
func MustParseTrustedProxies(entries ...string) TrustedProxies {
	tp, err := ParseTrustedProxies(entries)
	if err != nil {
		panic(err)
	}
	return tp
}

func (t TrustedProxies) Len() int { return len(t.prefixes) }

func (t TrustedProxies) Prefixes() []netip.Prefix {
	out := make([]netip.Prefix, len(t.prefixes))
	copy(out, t.prefixes)
	return out
}

// Contains informa se addr está em alguma faixa confiável.
// Endereços IPv4 mapeados em IPv6 (::ffff:a.b.c.d) são comparados como IPv4.
func (t TrustedProxies) Contains(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	for _, p := range t.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
