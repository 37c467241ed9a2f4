// Package topology implementa el protocolo de aprovisionamiento de topología
// de un cluster shardeado.
//
// Componentes, en orden de dependencia:
//
//	Discoverer   descubre el primario de un replica-set (sólo lectura)
//	Registrar    registra shards y nodos de cómputo en el metadata store
//	Propagator   replica shards e identidad al catálogo de cada nodo de cómputo
//	Bootstrapper compone los tres para crear un cluster completo
//
// El metadata store es la fuente de verdad y se escribe en una única
// transacción por operación. La propagación a los catálogos ocurre después
// del commit, es idempotente y se reintenta por nodo; una falla de
// propagación nunca deshace la metadata.
package topology
