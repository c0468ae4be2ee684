package application

import (
	"net/netip"
	"strings"

	"auth-admission/middleware/ratelimit/domain"
)

// ResolveClientAddress deriva o endereço real do cliente.
//
// O cabeçalho de encaminhamento só é considerado quando a conexão direta vem
// de um proxy confiável; caso contrário é ignorado por inteiro (uma borda não
// confiável não consegue injetar uma cadeia falsa). Quando confiável, a cadeia
// é percorrida da direita para a esquerda e o primeiro endereço fora das faixas
// confiáveis é o cliente. Qualquer token inválido encerra a busca e devolve
// o endereço direto. Nunca falha.
func ResolveClientAddress(direct, forwardedFor string, trusted domain.TrustedProxies) string {
	directAddr, err := netip.ParseAddr(strings.TrimSpace(direct))
	if err != nil {
		// sem endereço direto utilizável não há como confiar em nada
		return direct
	}
	directAddr = directAddr.Unmap()
	resolved := directAddr.String()

	if strings.TrimSpace(forwardedFor) == "" || !trusted.Contains(directAddr) {
		return resolved
	}

	hops := strings.Split(forwardedFor, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		addr, ok := parseHop(hops[i])
		if !ok {
			return resolved
		}
		if !trusted.Contains(addr) {
			return addr.String()
		}
	}

	// toda a cadeia é infraestrutura nossa
	return resolved
}

// parseHop aceita "ip", "[ipv6]" ou "ip:porta" / "[ipv6]:porta".
func parseHop(s string) (netip.Addr, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Addr{}, false
	}
	if inner, ok := strings.CutPrefix(s, "["); ok {
		if inner, ok = strings.CutSuffix(inner, "]"); ok {
			s = inner
		}
	}
	if a, err := netip.ParseAddr(s); err == nil {
		return a.Unmap(), true
	}
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap(), true
	}
	return netip.Addr{}, false
}
