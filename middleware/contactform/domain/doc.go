// Package domain define contratos e tipos de domínio do formulário de contato:
// janela de uso do rate limit, submissão, registro de auditoria e resultado.
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// de detalhes de infraestrutura (arquivo, Redis, SMTP, Postgres).
package domain
