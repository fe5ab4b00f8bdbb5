// Package avcodec реализует слой управления сессиями аудио/видео кодеков.
//
// Сам алгоритм кодирования или декодирования выполняет внешний движок (Engine).
// Пакет отвечает за то, что общее у всех кодеков: жизненный цикл сессии,
// асинхронный обмен буферами и согласование фоновой доставки событий с
// управляющими вызовами клиента.
//
// # Основные компоненты
//
//   - StateMachine - конечный автомат idle → configured → running → flushed/stopped → destroyed
//   - BufferRegistry - отображение блоков движка в стабильные handle'ы Buffer, по одному реестру на направление
//   - callbackGate - точка доставки событий движка клиенту, закрывается навсегда в Destroy
//   - Session - публичные операции Create/Configure/Start/Flush/Stop/Reset/Destroy/PushInput/ReleaseOutput
//   - EngineRegistry - поиск реализации движка по имени или mime типу
//
// # Жизненный цикл
//
//	Idle --Configure--> Configured --Start--> Running
//	Running --Flush--> Flushed --Start--> Running
//	Running --Stop--> Stopped --Start--> Running
//	любое живое состояние --Reset--> Idle
//	любое живое состояние --Destroy--> Destroyed
//
// Недопустимая операция возвращает ошибку с кодом CodeInvalidOperation
// и не меняет состояние.
//
// # Подавление событий
//
// Flush, Stop и Reset выставляют флаги до вызова движка. Событие о доступном
// буфере, которое гонится с такой операцией, либо видит флаг и отбрасывается,
// либо пришло раньше и обрабатывается. Очистка реестров выполняется под
// эксклюзивной блокировкой callbackGate, поэтому событие не может быть
// обработано после очистки. События об ошибках и смене формата флагами
// не подавляются.
//
// # Обработка ошибок
//
// Все ошибки имеют тип *CodecError с кодом ErrorCode:
//
//	if errors.Is(err, avcodec.ErrInvalidOperation) {
//	    // операция вызвана не в том состоянии
//	}
//	code := avcodec.CodeOf(err)
package avcodec
