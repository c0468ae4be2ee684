// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisCounter: contador de janela fixa atômico (Lua) + PING como health probe
//   - MemoryCounter: mesma semântica em memória, para desenvolvimento e testes
//   - RedisStatsStore / MemoryStatsStore / PrometheusStats: registro das decisões
//   - ChanPool: semáforo simples usado como bulkhead das idas ao store
package infra
