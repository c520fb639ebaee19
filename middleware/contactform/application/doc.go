// Package application contém os casos de uso do formulário de contato:
// rate limit por janela fixa, checagem de origem, armadilha de bots,
// validação de campos, composição do e-mail e o pipeline que orquestra tudo.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Pipeline.Submit(ctx, rc) retorna um Result (outcome + mensagem);
// o adapter HTTP traduz para status/headers.
package application
