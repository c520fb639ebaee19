// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - MemoryLedger / FileLedger / RedisLedger: janelas de uso por IP
//   - FileAuditLog / PostgresAuditSink: log de auditoria append-only
//   - MemoryStatsStore / RedisStatsStore / PrometheusStats: estatísticas por desfecho
//   - SMTPMailer / ThrottledMailer: envio da notificação (x/time/rate)
//   - NewSlotPool: semáforo simples para limite de concorrência
package infra
