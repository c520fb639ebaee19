// Package contactform fornece o adapter HTTP (net/http) do formulário de contato.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (origem, isca, rate limit, validação, pipeline) sem net/http
//   - infra: implementações concretas (ledger em memória/arquivo/Redis, auditoria, SMTP, métricas)
//   - contactform (este pacote): handler HTTP + extração da identidade + tradução para status/headers
//
// Fluxo no servidor:
//
//   1) Extrai a identidade do cliente (X-Forwarded-For validado / RemoteAddr)
//   2) Lê o formulário com limite de tamanho e monta um RequestContext
//   3) Chama Pipeline.Submit e traduz o Outcome em status HTTP
//   4) Responde JSON {"success":bool,"message":string} com headers de segurança
//
// Variáveis de ambiente do binário (cmd/contact-server) controlam o comportamento,
// como RATE_MAX, RATE_WINDOW, LEDGER_BACKEND e TRUSTED_ORIGINS.
package contactform
