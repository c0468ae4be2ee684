// Package application contém os casos de uso do controle de admissão:
// resolução do cliente atrás de proxies, namespacing das chaves, seleção de
// política, health gate do store e o motor de decisão.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Engine.Evaluate(ctx, req) retorna uma Decision (admit / reject quota /
// reject unavailable).
package application
