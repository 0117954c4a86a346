// Package mlx90363 implements the SPI protocol engine of the Melexis
// MLX90363 magnetic position sensor.
//
// Every exchange with the chip is a fixed 8 byte full-duplex frame whose
// last byte is a CRC over the first 7. The bytes are shifted one at a time
// by a Port; each completed byte is reported back through
// Session.OnByteExchanged, which advances the frame and, once the frame is
// complete, validates and decodes the received bytes into the Record of the
// Sensor that armed the transfer.
//
// The chip answers a request in the frame that follows it, so periodic
// polling re-sends the same staged request and reads the answer to the
// previous one.
package mlx90363
